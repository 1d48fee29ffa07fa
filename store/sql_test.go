// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package store_test

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/pageair/store"
)

// Hook up gocheck into the "go test" runner.
func TestStore(t *testing.T) { TestingT(t) }

type SQLClientSuite struct{}

var _ = Suite(&SQLClientSuite{})

func (s *SQLClientSuite) newDB(c *C) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	_, err = db.Exec(`CREATE TABLE people (id integer, name text, home_town text)`)
	c.Assert(err, IsNil)
	for i, name := range []string{"Jim", "Saba", "Dave", "Sophie", "Kiri"} {
		_, err := db.Exec(`INSERT INTO people (id, name, home_town) VALUES (?, ?, ?)`, i+1, name, "Berlin")
		c.Assert(err, IsNil)
	}
	return db
}

func (s *SQLClientSuite) TestPaging(c *C) {
	db := s.newDB(c)
	defer db.Close()
	client := store.NewSQLClient(db)
	ctx := context.Background()

	resp, err := client.CreateQuery(ctx, "people", "SELECT id, name FROM people ORDER BY id", nil, "", store.QueryOptions{PageSize: 2})
	c.Assert(err, IsNil)
	c.Assert(resp.EnsureSuccess(), IsNil)
	c.Assert(resp.Items(), HasLen, 2)
	c.Assert(resp.Items()[0]["name"], Equals, "Jim")
	c.Assert(resp.ContinuationToken(), Equals, "2")
	c.Assert(resp.RequestCost(), Equals, 2.0)
	c.Assert(resp.Status(), Equals, store.StatusOK)

	resp, err = client.CreateQuery(ctx, "people", "SELECT id, name FROM people ORDER BY id", nil, resp.ContinuationToken(), store.QueryOptions{PageSize: 2})
	c.Assert(err, IsNil)
	c.Assert(resp.Items(), HasLen, 2)
	c.Assert(resp.Items()[0]["name"], Equals, "Dave")
	c.Assert(resp.ContinuationToken(), Equals, "4")

	resp, err = client.CreateQuery(ctx, "people", "SELECT id, name FROM people ORDER BY id", nil, resp.ContinuationToken(), store.QueryOptions{PageSize: 2})
	c.Assert(err, IsNil)
	c.Assert(resp.Items(), HasLen, 1)
	c.Assert(resp.Items()[0]["name"], Equals, "Kiri")
	c.Assert(resp.ContinuationToken(), Equals, "")
}

func (s *SQLClientSuite) TestNamedParameters(c *C) {
	db := s.newDB(c)
	defer db.Close()
	client := store.NewSQLClient(db)

	resp, err := client.CreateQuery(context.Background(), "people",
		"SELECT name FROM people WHERE id > @min_id ORDER BY id",
		[]store.Parameter{{Name: "min_id", Value: 3}}, "", store.QueryOptions{})
	c.Assert(err, IsNil)
	c.Assert(resp.Items(), HasLen, 2)
	c.Assert(resp.Items()[0], DeepEquals, store.RawItem{"name": "Sophie"})
}

func (s *SQLClientSuite) TestMalformedContinuationToken(c *C) {
	db := s.newDB(c)
	defer db.Close()
	client := store.NewSQLClient(db)

	_, err := client.CreateQuery(context.Background(), "people", "SELECT name FROM people", nil, "not-a-token", store.QueryOptions{})
	c.Assert(err, ErrorMatches, `store error 400: malformed continuation token "not-a-token"`)
	code, ok := store.Code(err)
	c.Assert(ok, Equals, true)
	c.Assert(code, Equals, store.StatusBadRequest)
}

func (s *SQLClientSuite) TestQueryErrorWrapped(c *C) {
	db, mock, err := sqlmock.New()
	c.Assert(err, IsNil)
	defer db.Close()
	mock.ExpectQuery("SELECT name FROM people.*").WillReturnError(sql.ErrConnDone)

	client := store.NewSQLClient(db)
	_, err = client.CreateQuery(context.Background(), "people", "SELECT name FROM people", nil, "", store.QueryOptions{})
	c.Assert(err, ErrorMatches, "store query: .*")
	c.Assert(mock.ExpectationsWereMet(), IsNil)
}

func (s *SQLClientSuite) TestCodeWithoutStoreError(c *C) {
	_, ok := store.Code(sql.ErrNoRows)
	c.Assert(ok, Equals, false)
}
