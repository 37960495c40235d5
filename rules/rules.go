//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
// They enforce conventions of this codebase that go vet cannot see.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// UnbuiltError flags error builders that are never finished with Build().
//
//	errors.New(err).Component("raster")          // builder, not an error
//	errors.New(err).Component("raster").Build()  // *EnhancedError
func UnbuiltError(m dsl.Matcher) {
	m.Import("github.com/hotspot-detector/geodetect/internal/errors")

	m.Match(`return $b`).
		Where(m["b"].Type.Is("*errors.ErrorBuilder")).
		Report("error builder returned without calling Build()")
}

// FormattedLogMessage flags log calls that format values into the message
// instead of passing structured fields.
//
// Old pattern:
//
//	log.Info(fmt.Sprintf("loaded %d classes", n))
//
// New pattern:
//
//	log.Info("model loaded", logger.Int("classes", n))
func FormattedLogMessage(m dsl.Matcher) {
	m.Import("github.com/hotspot-detector/geodetect/internal/logger")

	m.Match(
		`$l.Debug(fmt.Sprintf($*_), $*_)`,
		`$l.Info(fmt.Sprintf($*_), $*_)`,
		`$l.Warn(fmt.Sprintf($*_), $*_)`,
		`$l.Error(fmt.Sprintf($*_), $*_)`,
	).
		Where(m["l"].Type.Implements("logger.Logger")).
		Report("use a constant message with logger fields instead of fmt.Sprintf")
}

// StdlibLogger flags the standard library logger outside main packages.
func StdlibLogger(m dsl.Matcher) {
	m.Match(`log.Printf($*_)`, `log.Println($*_)`, `log.Fatalf($*_)`).
		Where(m.File().Imports("log") && !m.File().PkgPath.Matches(`/cmd/|^main$`)).
		Report("use the module logger from logger.Global().Module(...)")
}

// BackgroundInHandler flags context.Background in HTTP handlers, which loses
// the request ID carried by the request context.
func BackgroundInHandler(m dsl.Matcher) {
	m.Match(`context.Background()`).
		Where(m.File().PkgPath.Matches(`internal/api/handlers`)).
		Report("derive from c.Request().Context(), use context.WithoutCancel to detach")
}
