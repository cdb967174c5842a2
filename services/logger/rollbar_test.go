package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())

	sess := user.Session{UserID: "u-1", Name: "Jane", Roles: []string{user.RoleAdmin}}
	logger.Error("saving record", errors.New("boom"), map[string]interface{}{"record": "r-1"}, sess)

	out := buf.String()
	assert.Contains(t, out, "[ERROR] saving record")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "r-1")
	assert.NotContains(t, out, "u-1", "the session goes to rollbar, not to the output")

	args := logger.prepare("msg", []interface{}{sess, sess, 42})
	assert.Equal(t, []interface{}{"msg", 42}, args)
}
