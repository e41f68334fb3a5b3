// Package model defines the provider-agnostic interface for one
// chat-completion call with bound tool schemas, plus the normalized
// request/response shapes shared by all provider adapters. The agent loop is
// strictly sequential, so Generate performs exactly one round trip; there is
// deliberately no streaming surface here.
package model
