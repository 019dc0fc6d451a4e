package connector

import "github.com/Mohsinsiddi/w3link/internal/eip1193"

// Injected is an object a host exposes to the application, such as the
// ethereum global of a browser. Provider may be nil for pure containers.
type Injected struct {
	Provider  eip1193.Provider
	Flags     map[string]bool
	Providers []*Injected
	Children  map[string]*Injected
}

// Flag reports whether the vendor flag is set.
func (o *Injected) Flag(name string) bool {
	return o != nil && o.Flags[name]
}

// Child returns a nested object, or nil.
func (o *Injected) Child(name string) *Injected {
	if o == nil {
		return nil
	}
	return o.Children[name]
}

// provider returns the object's provider, tolerating a nil receiver.
func (o *Injected) provider() eip1193.Provider {
	if o == nil {
		return nil
	}
	return o.Provider
}

// Environment gives connectors access to host globals.
type Environment interface {
	Global(name string) *Injected
}

// StaticEnvironment is an Environment backed by a fixed table.
type StaticEnvironment map[string]*Injected

// Global implements Environment.
func (e StaticEnvironment) Global(name string) *Injected {
	return e[name]
}
