package user

import (
	"context"
)

type ctxKey int

const sessionKey ctxKey = 1

// Session is the authenticated caller, injected into every operation that depends on who is asking.
// TeacherID and StudentID link the account to the attendance subject it represents (if any).
type Session struct {
	UserID    string   `json:"user_id"`
	Name      string   `json:"name,omitempty"`
	Roles     []string `json:"roles"`
	TeacherID string   `json:"teacher_id,omitempty"`
	StudentID string   `json:"student_id,omitempty"`
	ClassIDs  []string `json:"class_ids,omitempty"`
}

func (s Session) IsAnonymous() bool { return s.UserID == "" }

func (s Session) IsAdmin() bool { return hasRolePrefix(s.Roles, RoleAdmin) }

func (s Session) IsTeacher() bool { return hasRolePrefix(s.Roles, RoleTeacher) }

func (s Session) IsStudent() bool { return hasRolePrefix(s.Roles, RoleStudent) }

// TeachesClass reports whether classID is one of the teacher's classes.
func (s Session) TeachesClass(classID string) bool {
	if classID == "" {
		return false
	}
	for _, id := range s.ClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// FromContext returns the Session stored in ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok
}
