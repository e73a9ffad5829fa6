// Package demo builds the sample pipeline run by the materialite binary: customers joined with
// their orders, materialized as a top list, per customer order counts and a revenue total.
package demo

import (
	"cmp"
	"fmt"
	"math/rand/v2"

	"github.com/l7mp/materialite/pkg/graph"
	"github.com/l7mp/materialite/pkg/materialite"
	"github.com/l7mp/materialite/pkg/view"
)

type Customer struct {
	ID   int
	Name string
}

type Order struct {
	ID         int
	CustomerID int
	Amount     int
}

// Line is an order joined with its customer.
type Line struct {
	Customer string
	Order    int
	Amount   int
}

// Report is a snapshot of the demo views.
type Report struct {
	Version     graph.Version
	Top         []Line
	PerCustomer []graph.KeyCount[string]
	Revenue     float64
}

// Demo is a running demo pipeline.
type Demo struct {
	M           *materialite.Materialite
	Customers   *materialite.TreeSource[Customer]
	Orders      *materialite.MapSource[Order]
	Top         *view.TreeView[Line]
	PerCustomer *view.TreeView[graph.KeyCount[string]]
	Revenue     *view.ValueView[Line, float64]

	live   []Order
	nextID int
}

var names = []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi"}

func byCustomerID(a, b Customer) int {
	return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Name, b.Name))
}

// byAmount orders lines by decreasing amount.
func byAmount(a, b Line) int {
	return cmp.Or(cmp.Compare(b.Amount, a.Amount), cmp.Compare(a.Customer, b.Customer), cmp.Compare(a.Order, b.Order))
}

func byKeyCount(a, b graph.KeyCount[string]) int {
	return cmp.Or(cmp.Compare(a.Key, b.Key), cmp.Compare(a.Count, b.Count))
}

// New builds the pipeline. The top view keeps the limit largest orders.
func New(m *materialite.Materialite, limit int) (*Demo, error) {
	d := &Demo{
		M:         m,
		Customers: materialite.NewTreeSource(m, "customers", byCustomerID),
		Orders:    materialite.NewMapSource[Order](m, "orders"),
	}

	lines := graph.JoinWith(d.Customers.Stream(), d.Orders.Stream(),
		func(c Customer) int { return c.ID },
		func(o Order) int { return o.CustomerID },
		func(c Customer, o Order) Line { return Line{Customer: c.Name, Order: o.ID, Amount: o.Amount} })

	var err error
	if d.Top, err = view.NewTreeView(lines, byAmount, view.Options{Name: "top", Limit: limit}); err != nil {
		return nil, fmt.Errorf("top view: %w", err)
	}
	counts := graph.Count(lines, func(l Line) string { return l.Customer })
	if d.PerCustomer, err = view.NewTreeView(counts, byKeyCount, view.Options{Name: "per-customer"}); err != nil {
		return nil, fmt.Errorf("per-customer view: %w", err)
	}
	if d.Revenue, err = view.NewSumView(lines, func(l Line) float64 { return float64(l.Amount) },
		view.Options{Name: "revenue"}); err != nil {
		return nil, fmt.Errorf("revenue view: %w", err)
	}
	return d, nil
}

// Load adds the given number of customers and random orders in a single transaction.
func (d *Demo) Load(rnd *rand.Rand, customers, orders int) error {
	customers = min(max(customers, 1), len(names))
	return d.M.Tx(func() error {
		for i := range customers {
			if err := d.Customers.Add(Customer{ID: i, Name: names[i]}); err != nil {
				return err
			}
		}
		for range orders {
			if err := d.addOrder(rnd, customers); err != nil {
				return err
			}
		}
		return nil
	})
}

// Churn runs n transactions, each adding a new order or deleting an existing one.
func (d *Demo) Churn(rnd *rand.Rand, customers, n int) error {
	customers = min(max(customers, 1), len(names))
	for range n {
		if len(d.live) > 0 && rnd.IntN(2) == 0 {
			i := rnd.IntN(len(d.live))
			o := d.live[i]
			d.live = append(d.live[:i], d.live[i+1:]...)
			if err := d.Orders.Delete(o); err != nil {
				return err
			}
			continue
		}
		if err := d.M.Tx(func() error { return d.addOrder(rnd, customers) }); err != nil {
			return err
		}
	}
	return nil
}

func (d *Demo) addOrder(rnd *rand.Rand, customers int) error {
	o := Order{ID: d.nextID, CustomerID: rnd.IntN(customers), Amount: 1 + rnd.IntN(1000)}
	if err := d.Orders.Add(o); err != nil {
		return err
	}
	d.nextID++
	d.live = append(d.live, o)
	return nil
}

// Report returns the current contents of the views.
func (d *Demo) Report() Report {
	return Report{
		Version:     d.M.Version(),
		Top:         d.Top.Values(),
		PerCustomer: d.PerCustomer.Values(),
		Revenue:     d.Revenue.Data(),
	}
}
