package types

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Validate checks v against its `validate` struct tags. The Cycle
// Driver's raw-load phase checks each new Mention with ValidateNew before
// insert; no other caller in the repository validates values before
// storage.
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// ValidateNew checks v against its `validate` struct tags, skipping the
// named fields — for values not yet persisted, whose identity fields
// (e.g. a db-generated uuid) are legitimately still zero.
func ValidateNew(v interface{}, skipFields ...string) error {
	return validate.StructExcept(v, skipFields...)
}
