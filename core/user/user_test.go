package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRoles(t *testing.T) {
	tests := []struct {
		name        string
		sess        Session
		wantAdmin   bool
		wantTeacher bool
		wantStudent bool
	}{
		{name: "anonymous", sess: Session{}},
		{name: "principal", sess: Session{UserID: "1", Roles: []string{RoleAdminPrincipal}}, wantAdmin: true},
		{name: "teacher", sess: Session{UserID: "2", Roles: []string{RoleTeacher}}, wantTeacher: true},
		{name: "student", sess: Session{UserID: "3", Roles: []string{RoleStudent}}, wantStudent: true},
		{name: "teacher admin", sess: Session{UserID: "4", Roles: []string{RoleTeacher, RoleAdmin}}, wantAdmin: true, wantTeacher: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAdmin, tt.sess.IsAdmin())
			assert.Equal(t, tt.wantTeacher, tt.sess.IsTeacher())
			assert.Equal(t, tt.wantStudent, tt.sess.IsStudent())
		})
	}
	assert.True(t, Session{}.IsAnonymous())
}

func TestSessionContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	sess := Session{UserID: "7", Roles: []string{RoleTeacher}, TeacherID: "t-7", ClassIDs: []string{"c-1"}}
	got, ok := FromContext(NewContext(context.Background(), sess))
	assert.True(t, ok)
	assert.Equal(t, sess, got)
	assert.True(t, got.TeachesClass("c-1"))
	assert.False(t, got.TeachesClass("c-2"))
	assert.False(t, got.TeachesClass(""))
}

func TestValidRoles(t *testing.T) {
	assert.True(t, ValidRoles(nil))
	assert.True(t, ValidRoles([]string{RoleAdminPrincipal, RoleTeacher}))
	assert.False(t, ValidRoles([]string{RoleStudent, "admin:janitor"}))
}
