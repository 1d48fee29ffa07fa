package example

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/canonical/pageair"
	"github.com/canonical/pageair/store"

	_ "github.com/mattn/go-sqlite3"
)

type Location struct {
	ID   int    `db:"room_id"`
	Name string `db:"room_name"`
	Team string `db:"room_team"`
}

type Person struct {
	Name string `db:"name"`
	ID   int    `db:"id"`
	Team string `db:"team"`
}

func example() {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		panic(err)
	}
	_, err = sqldb.Exec(`
	CREATE TABLE person (
		name text,
		id integer,
		team text
	);
	CREATE TABLE location (
		room_id integer,
		room_name text,
		room_team text
	)`)
	if err != nil {
		panic(err)
	}

	var al = Person{"Alastair", 1, "engineering"}
	var ed = Person{"Ed", 2, "engineering"}
	var marco = Person{"Marco", 3, "engineering"}
	var pedro = Person{"Pedro", 4, "management"}
	var serdar = Person{"Serdar", 5, "presentation engineering"}
	var joe = Person{"Joe", 6, "marketing"}
	var ben = Person{"Ben", 7, "legal"}
	var sam = Person{"Sam", 8, "hr"}
	var paul = Person{"Paul", 9, "sales"}
	var mark = Person{"Mark", 10, "leadership"}
	var gus = Person{"Gustavo", 11, "leadership"}
	var people = []Person{ed, al, marco, pedro, serdar, joe, ben, sam, paul, mark, gus}
	for _, p := range people {
		if _, err := sqldb.Exec("INSERT INTO person (name, id, team) VALUES (?, ?, ?)", p.Name, p.ID, p.Team); err != nil {
			panic(err)
		}
	}

	l1 := Location{1, "Basement", "engineering"}
	l2 := Location{34, "Floor 2", "presentation engineering"}
	l3 := Location{19, "Floor 3", "management"}
	l4 := Location{66, "The Market", "marketing"}
	l5 := Location{7, "Court", "legal"}
	l6 := Location{9, "Floors 4 to 89", "hr"}
	l7 := Location{73, "Bar", "sales"}
	l8 := Location{32, "Penthouse", "leadership"}
	var locations = []Location{l1, l2, l3, l4, l5, l6, l7, l8}
	for _, l := range locations {
		if _, err := sqldb.Exec("INSERT INTO location (room_id, room_name, room_team) VALUES (?, ?, ?)", l.ID, l.Name, l.Team); err != nil {
			panic(err)
		}
	}

	model, err := pageair.NewModel(
		pageair.EntityDef{Name: "Person", Container: "person", Key: "id"},
		pageair.EntityDef{Name: "Location", Container: "location", Key: "room_id"},
	)
	if err != nil {
		panic(err)
	}
	db := pageair.NewStore(store.NewSQLClient(sqldb))

	// Find someone on the engineering team.
	selectEngineer := pageair.MustPrepare(model, pageair.From("Person").As("p").
		Where(pageair.Eq(pageair.Col("p.team"), pageair.Lit("engineering"))),
		Person{})

	q := db.Query(nil, selectEngineer, nil)

	var pal = Person{}
	// Get returns a single result.
	err = q.Get(&pal)
	if err != nil {
		panic(err)
	}

	fmt.Printf("%s is on the engineering team.\n", pal.Name)

	// Find out who is in location l1.
	selectPeopleInRoom := pageair.MustPrepare(model, pageair.From("Person").As("p").
		Where(pageair.Eq(pageair.Col("p.team"), pageair.Param("team"))),
		Person{})

	q = db.Query(nil, selectPeopleInRoom, pageair.M{"team": l1.Team})

	var roomDwellers = []Person{}
	// GetAll returns all the results.
	err = q.GetAll(&roomDwellers)
	if err != nil {
		panic(err)
	}

	for _, p := range roomDwellers {
		fmt.Printf("%s, ", p.Name)
	}
	fmt.Println("are in room l1.")

	// Print out who is in which room.
	selectPeopleAndRoom := pageair.MustPrepare(model, pageair.From("Location").As("l").
		Join(pageair.From("Person").As("p"),
			pageair.Eq(pageair.Col("p.team"), pageair.Col("l.room_team"))),
		Location{}, Person{},
	)

	q = db.Query(context.Background(), selectPeopleAndRoom, nil)

	// Results can be iterated through with Iter().
	iter := q.Iter()
	for iter.Next() {
		var l = Location{}
		var p = Person{}

		err := iter.Get(&l, &p)
		if err != nil {
			panic(err)
		}

		fmt.Printf("%s is in %s\n", p.Name, l.Name)
	}
	if err := iter.Close(); err != nil {
		panic(err)
	}
}
