// Package aggregate fans a task out to multiple agents concurrently and
// reduces their responses to a single result. Collection is bounded by an
// overall deadline and completes early once the minimum input count and all
// required agents have answered; reduction supports consensus clustering,
// weighted averaging, majority voting, best-confidence selection and an
// optional external judge.
package aggregate
