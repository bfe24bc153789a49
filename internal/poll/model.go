package poll

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Option is one answer choice of a poll.
type Option struct {
	ID      int    `json:"id"`
	Text    string `json:"text"`
	Correct *bool  `json:"correct"`
	Votes   int    `json:"votes"`
}

// Poll is the persisted record of a question, its options and their votes.
// The JSON names are the ones clients already consume.
type Poll struct {
	ID        string    `json:"_id"`
	Question  string    `json:"question"`
	Options   []Option  `json:"options"`
	Timer     int       `json:"timer"`
	Owner     string    `json:"teacherUsername"`
	CreatedAt time.Time `json:"createdAt"`
	Closed    bool      `json:"closed"`
}

// Tally maps option text to its current vote count.
type Tally map[string]int

// Clone returns a deep copy so callers never share option slices or flags.
func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Options = make([]Option, len(p.Options))
	for i, opt := range p.Options {
		if opt.Correct != nil {
			correct := *opt.Correct
			opt.Correct = &correct
		}
		cp.Options[i] = opt
	}
	return &cp
}

// Tally builds the option text to vote count mapping, covering every option.
func (p *Poll) Tally() Tally {
	t := make(Tally, len(p.Options))
	for _, opt := range p.Options {
		t[opt.Text] = opt.Votes
	}
	return t
}

// OptionIndex returns the position of the option whose text matches exactly, or -1.
func (p *Poll) OptionIndex(text string) int {
	for i, opt := range p.Options {
		if opt.Text == text {
			return i
		}
	}
	return -1
}

// TotalVotes sums the vote counts of all options.
func (p *Poll) TotalVotes() int {
	total := 0
	for _, opt := range p.Options {
		total += opt.Votes
	}
	return total
}

// OptionInput is an option as submitted by the presenter. ID and Correct are optional.
type OptionInput struct {
	ID      *int   `json:"id,omitempty"`
	Text    string `json:"text"`
	Correct *bool  `json:"correct,omitempty"`
}

// CreateRequest carries everything needed to open a poll.
type CreateRequest struct {
	Question string        `json:"question"`
	Options  []OptionInput `json:"options"`
	Timer    TimerSeconds  `json:"timer"`
	Owner    string        `json:"teacherUsername"`
}

// TimerSeconds is the poll duration as sent by clients. Presenter pages send it as a
// number or as the text of a form field; anything that is not numeric decodes to 0,
// which selects the default timer.
type TimerSeconds int

func (t *TimerSeconds) UnmarshalJSON(data []byte) error {
	*t = 0
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		data = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	switch {
	case f >= math.MaxInt:
		*t = TimerSeconds(math.MaxInt)
	case f <= math.MinInt:
		*t = -1
	default:
		*t = TimerSeconds(f)
	}
	return nil
}

// normalizeOptions validates the submitted options and assigns 1-based ids where missing.
func normalizeOptions(in []OptionInput) ([]Option, error) {
	if len(in) == 0 {
		return nil, invalidf("at least one option is required")
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Option, len(in))
	for i, opt := range in {
		if strings.TrimSpace(opt.Text) == "" {
			return nil, invalidf("option %d has no text", i+1)
		}
		if _, dup := seen[opt.Text]; dup {
			return nil, invalidf("duplicate option text %q", opt.Text)
		}
		seen[opt.Text] = struct{}{}

		id := i + 1
		if opt.ID != nil {
			id = *opt.ID
		}
		out[i] = Option{ID: id, Text: opt.Text, Correct: opt.Correct}
	}
	return out, nil
}
