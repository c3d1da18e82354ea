// Command agentgraph runs workflow graphs from the command line.
//
//	agentgraph run --graph review.yaml --input content="draft text"
//	agentgraph validate --graph review.yaml
//	agentgraph version
package main
