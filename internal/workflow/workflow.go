// Package workflow holds the status sets of invitations and follow requests
// and the transitions allowed between them.
package workflow

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

type FollowRequestStatus string

const (
	FollowPending  FollowRequestStatus = "PENDING"
	FollowApproved FollowRequestStatus = "APPROVED"
	FollowDenied   FollowRequestStatus = "DENIED"
	FollowRevoked  FollowRequestStatus = "REVOKED"
)

var invitationTransitions = map[InvitationStatus][]InvitationStatus{
	InvitationPending: {InvitationAccepted, InvitationDeclined, InvitationExpired},
}

// REVOKED -> PENDING only happens as the first half of a restore, which
// continues to APPROVED in the same transaction.
var followTransitions = map[FollowRequestStatus][]FollowRequestStatus{
	FollowPending:  {FollowApproved, FollowDenied},
	FollowApproved: {FollowRevoked},
	FollowRevoked:  {FollowPending},
}

func CanTransitionInvitation(from, to InvitationStatus) bool {
	for _, next := range invitationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionFollow(from, to FollowRequestStatus) bool {
	for _, next := range followTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Approvable reports whether approve may act on a request in this status.
// A REVOKED request is approved by passing through PENDING.
func Approvable(status FollowRequestStatus) bool {
	return status == FollowPending || status == FollowRevoked
}

func (s InvitationStatus) Terminal() bool {
	return s != InvitationPending
}

func ParseInvitationStatus(value string) (InvitationStatus, bool) {
	switch s := InvitationStatus(value); s {
	case InvitationPending, InvitationAccepted, InvitationDeclined, InvitationExpired:
		return s, true
	}
	return "", false
}
