package analysis

import "errors"

// ErrBusy rejects a submission while another analysis is in flight. Job
// tracking does not hold the flag: a queued job streams in the background
// while new submissions proceed.
var ErrBusy = errors.New("analysis already in progress")

// ErrNothingToAnalyze is returned when neither the selection nor the
// document body contains text.
var ErrNothingToAnalyze = errors.New("nothing to analyze")
