package database

import (
	"database/sql"
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/kipindi/core"
)

func Test_dsn(t *testing.T) {
	conf := &core.Config{Database: core.DatabaseConfig{
		Engine:        "postgres",
		Host:          "db.local",
		Port:          5433,
		Name:          "kipindi",
		User:          "kipindi",
		Password:      "s3cret",
		AdminUser:     "postgres",
		AdminPassword: "adm1n",
	}}

	tests := []struct {
		name       string
		dbName     string
		admin      bool
		disableTLS bool
		wantUser   string
		wantPwd    string
		wantSSL    string
	}{
		{name: "app user", dbName: "kipindi", wantUser: "kipindi", wantPwd: "s3cret", wantSSL: "require"},
		{name: "admin", dbName: "postgres", admin: true, wantUser: "postgres", wantPwd: "adm1n", wantSSL: "require"},
		{name: "no tls", dbName: "kipindi", disableTLS: true, wantUser: "kipindi", wantPwd: "s3cret", wantSSL: "disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Database.DisableTLS = tt.disableTLS
			u, err := url.Parse(dsn(tt.dbName, tt.admin, conf))
			if err != nil {
				t.Fatalf("url.Parse() error = %v", err)
			}
			pwd, _ := u.User.Password()
			if u.User.Username() != tt.wantUser || pwd != tt.wantPwd {
				t.Errorf("user = %s:%s, want %s:%s", u.User.Username(), pwd, tt.wantUser, tt.wantPwd)
			}
			if u.Host != "db.local:5433" || strings.TrimPrefix(u.Path, "/") != tt.dbName {
				t.Errorf("host/path = %s%s", u.Host, u.Path)
			}
			if got := u.Query().Get("sslmode"); got != tt.wantSSL {
				t.Errorf("sslmode = %s, want %s", got, tt.wantSSL)
			}
			if got := u.Query().Get("timezone"); got != "utc" {
				t.Errorf("timezone = %s, want utc", got)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	orig := gooseRunFunc
	defer func() { gooseRunFunc = orig }()

	var gotCommand, gotDir string
	var gotArgs []string
	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		gotCommand, gotDir, gotArgs = command, dir, args
		if command == "lol" {
			return errors.New(`"lol": no such command`)
		}
		return nil
	}

	if err := Migrate(nil, "up-to", "2"); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if gotCommand != "up-to" || gotDir != "migrations" || len(gotArgs) != 1 || gotArgs[0] != "2" {
		t.Errorf("goose called with (%s, %s, %v)", gotCommand, gotDir, gotArgs)
	}

	err := Migrate(nil, "lol")
	if err == nil || !strings.Contains(err.Error(), "migrating database (lol)") {
		t.Errorf("Migrate() error = %v, want it wrapped", err)
	}
}
