package testing

import (
	"github.com/icrowley/fake"
	"strings"
)

// Identity holds sign-up data of a fake user
type Identity struct {
	Name     string
	Email    string
	Password string
}

// NewIdentity returns a fake identity whose email is unique across calls with high probability
func NewIdentity() Identity {
	name := fake.FullName()
	if len(strings.TrimSpace(name)) < 3 {
		name = "User " + RandString()
	}
	return Identity{
		Name:     name,
		Email:    strings.ToLower(fake.FirstName() + "." + RandString() + "@example.com"),
		Password: "Secret#" + RandStringN(6) + "1",
	}
}

// ProductName returns a fake product name at least 3 symbols long
func ProductName() string {
	name := fake.ProductName()
	if len(name) < 3 {
		return "Item " + RandString()
	}
	return name
}

// Sentence returns a fake one line message
func Sentence() string {
	return fake.Sentence()
}
