package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsDSN_Local(t *testing.T) {
	dsn := Settings{Host: "127.0.0.1", Port: "4000", User: "root", Database: "tablestore"}.DSN()
	assert.Contains(t, dsn, "root@tcp(127.0.0.1:4000)/tablestore")
	assert.Contains(t, dsn, "parseTime=true")
	assert.NotContains(t, dsn, "tls=")
}

func TestSettingsDSN_RemoteUsesTLS(t *testing.T) {
	dsn := Settings{Host: "gateway.tidbcloud.com", Port: "4000", User: "u", Password: "p", Database: "d"}.DSN()
	assert.Contains(t, dsn, "tls=tidb")
	assert.Contains(t, dsn, "u:p@tcp(gateway.tidbcloud.com:4000)/d")
}
