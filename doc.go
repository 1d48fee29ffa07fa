/*
PageAir compiles typed queries into store-neutral query plans and executes
them one page at a time against any paginated document or row store.

Queries are composed with operators instead of query strings. The operators
build an expression tree which Prepare lowers into an immutable logical
plan; structurally identical queries, whatever aliases they use, share one
compiled plan. At execution time the plan is rendered into query text with
named placeholders and driven through a store client that answers with
pages of raw items and an opaque continuation token.

# Basics

Entity types are declared in a model and results are decoded into tagged
structs. Given:

	type Person struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
		Team string `db:"team"`
	}

	model, err := pageair.NewModel(pageair.EntityDef{
		Name:      "Person",
		Container: "person",
		Key:       "id",
	})

a query over the people of one team is prepared once:

	stmt, err := pageair.Prepare(model, pageair.From("Person").As("p").
		Where(pageair.Eq(pageair.Col("p.team"), pageair.Param("team"))),
		Person{})

and run any number of times:

	iter := db.Query(ctx, stmt, pageair.M{"team": "engineering"}).Iter()
	for iter.Next() {
		var p Person
		if err := iter.Get(&p); err != nil {
			break
		}
	}
	err := iter.Close()

# Paging

Query.Pages drives the query page by page. The reserved parameters
"pageSize", "continuationToken" and "responseSizeLimit" control paging; the
continuation token of a page can be handed to a later query, even in
another process, to resume after it. Without a page size a single advance
drains the whole result set.

# Tracking

A Store keeps an identity map of the entities it materializes: two results
carrying the same key decode to the same instance. Statements prepared with
Statement.NoTracking bypass the map and always materialize standalone
instances.
*/
package pageair
