// Package invoke is the single call contract to agent runtimes: submit a
// prompt plus context, get a response or error within a timeout. Any runtime
// (in-process function, hosted API, another orchestrator) is admissible
// behind the Invoker interface; the registry adds timeout enforcement,
// latency capture and error classification on top.
package invoke
