package kafka

import (
	"encoding/json"
	"fmt"

	"poll-service/internal/poll"
)

const clientID = "poll-service"

// encodeActivity returns the record key and value for an activity. Keying by poll id keeps
// each poll's activity on one partition, in order.
func encodeActivity(a poll.Activity) (key, value []byte, err error) {
	value, err = json.Marshal(a)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode %s activity: %w", a.Kind, err)
	}
	return []byte(a.PollID), value, nil
}
