// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

// Observer receives incremental updates while a turn is streaming.
//
// All callbacks are invoked synchronously from the event-processing
// loop, in event arrival order. Implementations should return quickly;
// slow observers delay stream consumption.
type Observer interface {
	// OnPartial delivers the updated partial answer after each token.
	OnPartial(content string)

	// OnReference fires once per distinct citation, at first sight.
	OnReference(ref Reference)

	// OnCommitted fires when a turn's assistant message is committed.
	OnCommitted(msg Message)

	// OnRetrievalUsed surfaces the done event's retrieval flag as a
	// side signal (for example to drive an external notification).
	OnRetrievalUsed(used bool)
}

// NopObserver ignores all updates.
type NopObserver struct{}

func (NopObserver) OnPartial(string)      {}
func (NopObserver) OnReference(Reference) {}
func (NopObserver) OnCommitted(Message)   {}
func (NopObserver) OnRetrievalUsed(bool)  {}

// ObserverFuncs adapts plain functions to the Observer interface.
// Nil fields are no-ops; convenient for tests and the CLI.
type ObserverFuncs struct {
	Partial       func(content string)
	Reference     func(ref Reference)
	Committed     func(msg Message)
	RetrievalUsed func(used bool)
}

func (o ObserverFuncs) OnPartial(content string) {
	if o.Partial != nil {
		o.Partial(content)
	}
}

func (o ObserverFuncs) OnReference(ref Reference) {
	if o.Reference != nil {
		o.Reference(ref)
	}
}

func (o ObserverFuncs) OnCommitted(msg Message) {
	if o.Committed != nil {
		o.Committed(msg)
	}
}

func (o ObserverFuncs) OnRetrievalUsed(used bool) {
	if o.RetrievalUsed != nil {
		o.RetrievalUsed(used)
	}
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var _ Observer = NopObserver{}
var _ Observer = ObserverFuncs{}
