package demo

import (
	"context"
	"fmt"
	"os"

	"github.com/canonical/go-dqlite/app"

	"github.com/canonical/pageair"
	"github.com/canonical/pageair/store"
)

type Person struct {
	Name     string `db:"name"`
	Height   int    `db:"height_cm"`
	HomeTown string `db:"home_town"`
}

func example() error {
	ctx := context.Background()

	// Run the queries over a single-node dqlite cluster.
	dir, err := os.MkdirTemp("", "pageair-demo")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	dqlite, err := app.New(dir)
	if err != nil {
		return err
	}
	defer dqlite.Close()
	if err := dqlite.Ready(ctx); err != nil {
		return err
	}
	sqldb, err := dqlite.Open(ctx, "demo")
	if err != nil {
		return err
	}

	_, err = sqldb.Exec(`
		CREATE TABLE IF NOT EXISTS people (
			name text,
			height_cm integer,
			home_town text
		);`)
	if err != nil {
		return err
	}
	var people = []Person{{"Jim", 150, "Kabul"}, {"Saba", 162, "Berlin"}, {"Dave", 169, "Brasília"}, {"Sophie", 174, "Berlin"}, {"Kiri", 168, "Cape Town"}}
	for _, person := range people {
		_, err := sqldb.Exec("INSERT INTO people (name, height_cm, home_town) VALUES (?, ?, ?)",
			person.Name, person.Height, person.HomeTown)
		if err != nil {
			return err
		}
	}

	model, err := pageair.NewModel(pageair.EntityDef{
		Name:      "Person",
		Container: "people",
		Key:       "name",
	})
	if err != nil {
		return err
	}
	db := pageair.NewStore(store.NewSQLClient(sqldb),
		pageair.WithStrategy(pageair.NewExecutionStrategy(pageair.RetryPolicy{MaxRetries: 3})))

	tallerThan := pageair.MustPrepare(model, pageair.From("Person").As("p").
		Where(pageair.Gt(pageair.Col("p.height_cm"), pageair.Param("height"))),
		Person{})

	// Find people taller than Jim.
	jim := people[0]
	q := db.Query(ctx, tallerThan, pageair.M{"height": jim.Height})
	iter := q.Iter()
	for iter.Next() {
		p := Person{}
		if err := iter.Get(&p); err != nil {
			break
		}
		fmt.Printf("%s is taller than %s.\n", p.Name, jim.Name)
	}
	err = iter.Close()
	if err != nil {
		return err
	}

	// The same query, two people at a time. The continuation token of each
	// page resumes the query after it, even from another process.
	pages := db.Query(ctx, tallerThan, pageair.M{
		"height":   jim.Height,
		"pageSize": 2,
	}).Pages()
	defer pages.Close()
	for {
		page, err := pages.NextPage()
		if err != nil {
			return err
		}
		if page == nil {
			break
		}
		tall := []Person{}
		if err := page.GetAll(&tall); err != nil {
			return err
		}
		fmt.Printf("page: %v (resume from %q)\n", tall, page.Continuation)
	}
	return nil
}

func main() {
	err := example()
	if err != nil {
		panic(err)
	}
}
