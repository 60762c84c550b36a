// Package agent implements the plan/execute/reflect engine that answers a
// help-desk question.
//
// A run has three stages:
//
//  1. The Planner breaks the question into an ordered Plan of subtasks.
//  2. One Executor per subtask loops through tool selection, tool
//     execution, answer drafting and reflection until the Reflector accepts
//     the draft or the attempt budget is spent. Executors run concurrently
//     and their results are collected in plan order.
//  3. The Composer merges the subtask answers into the final answer.
//
// Orchestrator.Run sequences the stages. Any fatal error (planning failure,
// no tool selected, unknown tool, unparsable reflection, collaborator error
// or cancellation) aborts the whole run and no result is returned.
package agent
