// Package adaptprofiler implements an adaptive behavioral profiler for language
// models: a Bayesian item-response engine that administers probe items from a fixed
// trait taxonomy, updates a diagonal posterior after every call, and stops once
// reliability, coverage, and robustness checks are jointly satisfied (or a call/token
// budget is exhausted).
//
// # Core Concepts
//
//   - Traits: a fixed twelve-trait taxonomy (package trait) the profiler estimates a
//     model against, with a critical subset the stopping policy requires converged
//     estimates for.
//   - Items: probe prompts with a scoring type, trait loadings, difficulty, and
//     guessing parameter (package probe), administered under one of several regimes
//     (system prompt + sampling temperature).
//   - Posterior: a diagonal Gaussian belief over every trait, maintained per regime
//     and updated with a one-step online Laplace approximation (packages posterior,
//     mirt).
//   - Selector: stage-aware (package selector) utility-maximizing item choice, with
//     epsilon-greedy exploration and forced sentinel/OOD/paraphrase injection.
//   - Stopping: an ordered, first-match-wins multi-predicate policy (package
//     stopping) combining call/token caps, stage minimums, sentinel coverage,
//     diminishing information gain, critical-trait coverage, reliability, and
//     confidence-interval width.
//   - Scoring: deterministic, dependency-free scoring of raw model text against each
//     item's scoring contract (package scorer), never erroring on unrecognized
//     output.
//   - Diagnostics: post-run signals computed from the response trace - paraphrase
//     consistency, a benchmark-training index, OOD gap, and refusal error rate
//     (package diagnostics).
//
// # Running a profile
//
//	cfg := config.Default()
//	cfg.ModelID = "my-model"
//
//	engine, err := adaptprofiler.NewEngine(cfg, adapter,
//		adaptprofiler.WithProgressSink(sink),
//		adaptprofiler.WithSelectorSeed(17),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	report, err := engine.Run(ctx, "")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// ModelAdapter is the only contract a caller must implement: given a prompt, regime,
// and probe item, return the model's completion and its token usage.
//
// # Error Handling
//
// The package uses sentinel errors wrapped in a structured ProfilerError:
//
//	if err != nil {
//		var perr *adaptprofiler.ProfilerError
//		if errors.As(err, &perr) && errors.Is(perr, adaptprofiler.ErrAdapterContract) {
//			// the adapter reported a negative token count
//		}
//	}
//
// # Observability
//
// Engine construction accepts an OpenTelemetry tracer and meter (WithTracer,
// WithMeter); without them, the engine emits no spans or metrics rather than
// depending on a collector being present. Package telemetry separately relays
// progress events to a gRPC collector.
package adaptprofiler
