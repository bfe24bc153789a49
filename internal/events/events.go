package events

// Name identifies an event exchanged with connected clients.
type Name string

// Inbound events sent by clients
const (
	Join              Name = "join"
	JoinChat          Name = "joinChat" // legacy alias of Join
	CreatePoll        Name = "createPoll"
	SubmitAnswer      Name = "submitAnswer"
	ClosePoll         Name = "closePoll"
	RemoveParticipant Name = "removeParticipant"
	KickOut           Name = "kickOut" // legacy alias of RemoveParticipant
)

// Outbound events pushed to clients
const (
	PollCreated        Name = "pollCreated"
	PollResults        Name = "pollResults"
	ParticipantsUpdate Name = "participantsUpdate"
	RemovedNotice      Name = "removedNotice"
	Error              Name = "error"
)

// ChatMessage travels both ways: clients send it and the server relays it to everyone.
const ChatMessage Name = "chatMessage"

func (n Name) String() string {
	return string(n)
}

// Publisher fans an event out to every connected client.
type Publisher interface {
	Publish(event Name, payload any)
}

// Gateway extends Publisher with the connection-addressed operations used by moderation.
type Gateway interface {
	Publisher
	PublishTo(connID string, event Name, payload any) error
	Disconnect(connID string)
}
