// Package catalog holds the product, combo and category back office. The
// handlers are deliberately thin: every route sits behind the permission
// gate, so this package is where most authorization checks get exercised
// in practice.
//
// Products and combos are scoped to an organization and carry an
// active/archived lifecycle. Deleting a product additionally requires
// that the caller created it, demonstrated through the gate's condition
// hook; owners bypass the condition through the role table.
//
// Product images are stored through pkg/uploads under keys recorded on
// the product row.
package catalog
