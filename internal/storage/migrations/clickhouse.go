package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chstore "btc-dca-agent/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the journal database named in dsn when it is
// missing, applies the embedded schema and returns a connection to it. The
// caller owns the connection.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	database, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := ensureDatabase(ctx, dsn, database); err != nil {
		return nil, err
	}

	conn, err := chstore.Open(ctx, dsn, database)
	if err != nil {
		return nil, err
	}
	if err := applyClickhouse(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// ensureDatabase runs CREATE DATABASE through the always-present "default" database.
func ensureDatabase(ctx context.Context, dsn, database string) error {
	admin, err := chstore.Open(ctx, dsn, "default")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS `"+database+"`"); err != nil {
		return fmt.Errorf("create database %s: %w", database, err)
	}
	return nil
}

func applyClickhouse(ctx context.Context, conn *chstore.Conn) error {
	files, err := readSQL(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := validateNoSemicolonInStrings(f.Body); err != nil {
			return fmt.Errorf("migration %s: %w", f.Name, err)
		}
		// The native protocol takes one statement per Exec.
		for i, stmt := range splitStatements(f.Body) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s statement %d: %w", f.Name, i+1, err)
			}
		}
	}
	return nil
}

// splitStatements drops "--" comment lines and splits the rest on semicolons.
func splitStatements(body string) []string {
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var stmts []string
	for _, part := range strings.Split(b.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects a semicolon inside a quoted literal,
// which splitStatements would cut in half. Doubled quotes are escapes.
func validateNoSemicolonInStrings(sql string) error {
	quoted := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if c == '\'' {
			if quoted && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			quoted = !quoted
			continue
		}
		if c == ';' && quoted {
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	opts, err := chstore.Options(dsn)
	if err != nil {
		return "", err
	}
	if opts.Auth.Database == "" || opts.Auth.Database == "default" {
		return "", errors.New("clickhouse dsn must name a dedicated database")
	}
	return opts.Auth.Database, nil
}
