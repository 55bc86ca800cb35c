package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Connection is one advertised way to reach a server.
type Connection struct {
	URI   string `json:"uri"`
	Local bool   `json:"local"`
	Relay bool   `json:"relay"`
}

// Server is a registered media server.
type Server struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	AccessToken  string       `json:"-"`
	LastKnownURI string       `json:"lastKnownUri"`
	Connections  []Connection `json:"connections"`
}

// UpsertServer stores the server and replaces its connection list.
func (s *Store) UpsertServer(ctx context.Context, srv Server) error {
	if srv.ID == "" {
		return errors.New("server id is required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO servers (id, name, access_token, last_known_uri) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				access_token = excluded.access_token,
				last_known_uri = CASE WHEN excluded.last_known_uri = '' THEN servers.last_known_uri ELSE excluded.last_known_uri END`,
			srv.ID, srv.Name, srv.AccessToken, srv.LastKnownURI)
		if err != nil {
			return fmt.Errorf("upsert server %s: %w", srv.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM server_connections WHERE server_id = ?`, srv.ID); err != nil {
			return fmt.Errorf("clear connections of %s: %w", srv.ID, err)
		}
		for i, c := range srv.Connections {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO server_connections (server_id, position, uri, local, relay) VALUES (?, ?, ?, ?, ?)`,
				srv.ID, i, c.URI, boolInt(c.Local), boolInt(c.Relay)); err != nil {
				return fmt.Errorf("insert connection %s: %w", c.URI, err)
			}
		}
		return nil
	})
}

// GetServer returns the server with its connections in registration order.
func (s *Store) GetServer(ctx context.Context, id string) (*Server, error) {
	srv := Server{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, access_token, last_known_uri FROM servers WHERE id = ?`, id).
		Scan(&srv.Name, &srv.AccessToken, &srv.LastKnownURI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("server %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get server %s: %w", id, err)
	}

	conns, err := s.connections(ctx, id)
	if err != nil {
		return nil, err
	}
	srv.Connections = conns
	return &srv, nil
}

func (s *Store) connections(ctx context.Context, serverID string) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uri, local, relay FROM server_connections WHERE server_id = ? ORDER BY position`, serverID)
	if err != nil {
		return nil, fmt.Errorf("list connections of %s: %w", serverID, err)
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.URI, &c.Local, &c.Relay); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// ListServers returns every registered server without connections.
func (s *Store) ListServers(ctx context.Context) ([]Server, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, access_token, last_known_uri FROM servers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var servers []Server
	for rows.Next() {
		var srv Server
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.AccessToken, &srv.LastKnownURI); err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// SetLastKnownURI records the endpoint that last answered for a server.
func (s *Store) SetLastKnownURI(ctx context.Context, serverID, uri string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE servers SET last_known_uri = ? WHERE id = ?`, uri, serverID)
	if err != nil {
		return fmt.Errorf("update last known uri of %s: %w", serverID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("server %s: %w", serverID, ErrNotFound)
	}
	return nil
}
