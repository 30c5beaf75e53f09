// Command selectionctl inspects and edits a selection store from the shell.
//
// Every invocation opens the store, runs one operation, prints the result
// as JSON and exits. Selections added here are always native: transient
// sessions would not outlive the process.
//
// Usage:
//
//	selectionctl add ~/Pictures ~/notes.txt
//	selectionctl list --pattern 'sel_*'
//	selectionctl count sel_01J...
//	selectionctl perms sel_01J... --mode readwrite
//	selectionctl reconcile --grace 1m
package main

func main() {
	execute()
}
