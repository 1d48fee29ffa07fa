// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package shape_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/pageair/internal/model"
	"github.com/canonical/pageair/internal/plan"
	"github.com/canonical/pageair/internal/shape"
	"github.com/canonical/pageair/internal/typeinfo"
	"github.com/canonical/pageair/store"
)

// Hook up gocheck into the "go test" runner.
func TestShape(t *testing.T) { TestingT(t) }

type shapeSuite struct{}

var _ = Suite(&shapeSuite{})

type Person struct {
	ID       int    `db:"id"`
	Fullname string `db:"name"`
}

type Address struct {
	ID     int    `db:"addr_id"`
	Street string `db:"street"`
}

type M map[string]any

var personEntity = &model.Entity{Name: "Person", Key: "id"}

func personSelect(projection *plan.Projection) *plan.Select {
	return plan.NewSelect(plan.NewTable("person", "Person", "p"), nil, projection)
}

func (s *shapeSuite) TestShapeStruct(c *C) {
	argInfo, err := typeinfo.GenerateArgInfo([]any{Person{}})
	c.Assert(err, IsNil)
	shaper, err := shape.New(personSelect(nil), argInfo, personEntity, false)
	c.Assert(err, IsNil)

	parts, err := shaper.Shape(nil, store.RawItem{"id": int64(1), "name": "Fred"})
	c.Assert(err, IsNil)
	c.Assert(parts, HasLen, 1)
	c.Assert(parts[0], DeepEquals, &Person{ID: 1, Fullname: "Fred"})
}

func (s *shapeSuite) TestShapeProjectedColumns(c *C) {
	argInfo, err := typeinfo.GenerateArgInfo([]any{Person{}, Address{}})
	c.Assert(err, IsNil)
	projection := plan.NewProjection(
		plan.NewColumn("p", "id"),
		plan.NewColumn("p", "name"),
		plan.NewColumn("a", "street"),
	)
	shaper, err := shape.New(personSelect(projection), argInfo, personEntity, false)
	c.Assert(err, IsNil)

	parts, err := shaper.Shape(nil, store.RawItem{
		"id":     int64(2),
		"name":   "Mark",
		"street": "Wallaby Way",
	})
	c.Assert(err, IsNil)
	c.Assert(parts, HasLen, 2)
	c.Assert(parts[0], DeepEquals, &Person{ID: 2, Fullname: "Mark"})
	c.Assert(parts[1], DeepEquals, &Address{Street: "Wallaby Way"})
}

func (s *shapeSuite) TestShapeMapReceivesWholeItem(c *C) {
	argInfo, err := typeinfo.GenerateArgInfo([]any{M{}})
	c.Assert(err, IsNil)
	shaper, err := shape.New(personSelect(nil), argInfo, nil, false)
	c.Assert(err, IsNil)

	parts, err := shaper.Shape(nil, store.RawItem{"id": int64(3), "name": "Pedro"})
	c.Assert(err, IsNil)
	c.Assert(parts, HasLen, 1)
	c.Assert(parts[0], DeepEquals, M{"id": int64(3), "name": "Pedro"})
}

func (s *shapeSuite) TestShapeMissingColumn(c *C) {
	argInfo, err := typeinfo.GenerateArgInfo([]any{Person{}})
	c.Assert(err, IsNil)
	shaper, err := shape.New(personSelect(nil), argInfo, personEntity, false)
	c.Assert(err, IsNil)

	_, err = shaper.Shape(nil, store.RawItem{"id": int64(1)})
	c.Assert(err, ErrorMatches, `result item has no column "name"`)
}

func (s *shapeSuite) TestShapeUnknownProjectionColumn(c *C) {
	argInfo, err := typeinfo.GenerateArgInfo([]any{Person{}})
	c.Assert(err, IsNil)
	projection := plan.NewProjection(plan.NewColumn("p", "postcode"))
	_, err = shape.New(personSelect(projection), argInfo, personEntity, false)
	c.Assert(err, ErrorMatches, `no output type has a member for column "postcode"`)
}

func (s *shapeSuite) TestTrackingReturnsSameInstance(c *C) {
	argInfo, err := typeinfo.GenerateArgInfo([]any{Person{}})
	c.Assert(err, IsNil)
	shaper, err := shape.New(personSelect(nil), argInfo, personEntity, true)
	c.Assert(err, IsNil)

	tracker := shape.NewTracker()
	first, err := shaper.Shape(tracker, store.RawItem{"id": int64(7), "name": "Ainhoa"})
	c.Assert(err, IsNil)
	second, err := shaper.Shape(tracker, store.RawItem{"id": int64(7), "name": "Ainhoa"})
	c.Assert(err, IsNil)
	c.Assert(second[0], Equals, first[0])
	c.Assert(tracker.Len(), Equals, 1)

	third, err := shaper.Shape(tracker, store.RawItem{"id": int64(8), "name": "Joe"})
	c.Assert(err, IsNil)
	c.Assert(third[0], Not(Equals), first[0])
	c.Assert(tracker.Len(), Equals, 2)
}

func (s *shapeSuite) TestNoTrackingBypassesTracker(c *C) {
	argInfo, err := typeinfo.GenerateArgInfo([]any{Person{}})
	c.Assert(err, IsNil)
	shaper, err := shape.New(personSelect(nil), argInfo, personEntity, false)
	c.Assert(err, IsNil)

	tracker := shape.NewTracker()
	first, err := shaper.Shape(tracker, store.RawItem{"id": int64(7), "name": "Ainhoa"})
	c.Assert(err, IsNil)
	second, err := shaper.Shape(tracker, store.RawItem{"id": int64(7), "name": "Ainhoa"})
	c.Assert(err, IsNil)
	c.Assert(second[0], Not(Equals), first[0])
	c.Assert(tracker.Len(), Equals, 0)
}

func (s *shapeSuite) TestTrackerClear(c *C) {
	argInfo, err := typeinfo.GenerateArgInfo([]any{Person{}})
	c.Assert(err, IsNil)
	shaper, err := shape.New(personSelect(nil), argInfo, personEntity, true)
	c.Assert(err, IsNil)

	tracker := shape.NewTracker()
	first, err := shaper.Shape(tracker, store.RawItem{"id": int64(9), "name": "Dani"})
	c.Assert(err, IsNil)
	tracker.Clear()
	c.Assert(tracker.Len(), Equals, 0)
	second, err := shaper.Shape(tracker, store.RawItem{"id": int64(9), "name": "Dani"})
	c.Assert(err, IsNil)
	c.Assert(second[0], Not(Equals), first[0])
}
