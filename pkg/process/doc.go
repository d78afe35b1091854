// Package process owns the OS processes launched by a supervised run.
//
// A Process wraps exactly one exec.Cmd. Its lifecycle only moves forward:
// Starting -> Running -> Exited(code) or Killed. Output of non-interactive
// children is forwarded line by line to logrus with a "stream" field.
//
// Non-interactive children are placed in their own process group so that
// Stop reaches the whole tree they spawn, mirroring what a console window
// closing would do for the batch launchers this replaces.
package process
