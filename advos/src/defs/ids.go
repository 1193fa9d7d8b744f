package defs

/// Tid_t identifies a task, the schedulable unit (spec.md §3's Task).
type Tid_t int

/// Pid_t identifies a process, unique among active processes.
/// Grounded on original_source/src/kernel/proc.h's pid_t.
type Pid_t int
