package types

// Inbound event names sent by clients over the project stream.
// ARCHITECTURAL DISCOVERY: Names are kept identical to the tracker's web client
// so existing front-ends keep working against this broker
const (
	EventJoin       = "join"
	EventLeave      = "leave"
	EventDisconnect = "disconnect"
)

// Outbound presence event names.
const (
	EventJoined = "joined"
	EventLeaved = "leaved"
	EventAck    = "ack"
)

// Project is the subset of a tracker project the broker needs to gate room creation
type Project struct {
	Code     string `json:"code" bson:"code"`
	Name     string `json:"name" bson:"name"`
	IsActive bool   `json:"is_active" bson:"is_active"`
}

// Identity is the user identity a client presents when joining a project room.
// FUNCTIONAL DISCOVERY: Not verified here, authorization happens upstream
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JoinRequest is the payload of the join event
type JoinRequest struct {
	ProjectCode string `json:"projectCode"`
	IdentityID  string `json:"identityId"`
	Name        string `json:"name"`
}

// Identity returns the identity carried by the join request
func (r JoinRequest) Identity() Identity {
	return Identity{ID: r.IdentityID, Name: r.Name}
}

// LeaveRequest is the payload of the leave event
type LeaveRequest struct {
	ProjectCode string `json:"projectCode"`
}

// DisconnectNotice is supplied by the transport when a connection goes away
type DisconnectNotice struct {
	Reason string `json:"reason"`
}

// Event is a single fan-out unit. It only lives for the duration of one broadcast.
type Event struct {
	Name        string `json:"event"`
	ProjectCode string `json:"-"`
	Payload     any    `json:"data"`
}

// Occupancy reports how many members are present in an active project room
type Occupancy struct {
	Code        string `json:"code"`
	MemberCount int    `json:"memberCount"`
}
