// Package tvinspect is the client side of the FM & TV tower inspection
// form (CA/F/FSM/17).
//
// The module is organised in layers:
//
//   - [github.com/tvinspection/tvinspect/pkg/schema] holds the field table
//     shared by the validator and the normalizer.
//   - [github.com/tvinspection/tvinspect/pkg/validate] evaluates the rule-set
//     of each field and reports per-section errors.
//   - [github.com/tvinspection/tvinspect/pkg/normalize] coerces form values
//     into typed submission values.
//   - [github.com/tvinspection/tvinspect/pkg/draft] is the state of a form
//     being filled in.
//   - [github.com/tvinspection/tvinspect/pkg/client] and
//     [github.com/tvinspection/tvinspect/pkg/session] talk to the inspection
//     backend and keep the login.
//
// The tvinspect command in cmd/tvinspect puts these together. It also runs a
// local service with a live validation socket, spoken by
// [github.com/tvinspection/tvinspect/pkg/live].
package tvinspect
