package archetype

// ID identifies an archetype within a Manager. IDs are assigned sequentially
// the first time a component-set combination is seen and are never reused.
type ID int
