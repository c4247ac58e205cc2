// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

func runUpdate(cmd *cobra.Command, args []string) {
	client := NewUpdaterClient(serverURL())
	printTitle("Updating NetPanel")

	outcome := streamAndReport(func(fn func(datatypes.StreamEvent)) error {
		return client.StreamUpdate(context.Background(), fn)
	})
	exitForOutcome(outcome)
}

func runRollback(cmd *cobra.Command, args []string) {
	client := NewUpdaterClient(serverURL())

	if !yesFlag && !confirm(fmt.Sprintf("Restore snapshot %s? The current tree will be replaced.", rollbackTarget)) {
		printMuted("Aborted.")
		return
	}

	printTitle("Rolling back NetPanel")
	outcome := streamAndReport(func(fn func(datatypes.StreamEvent)) error {
		return client.StreamRollback(context.Background(), rollbackTarget, fn)
	})
	exitForOutcome(outcome)
}

// streamAndReport runs a streaming operation, printing each event, and
// returns the terminal status the server reported. An empty status means
// the stream broke before a terminal event arrived.
func streamAndReport(stream func(func(datatypes.StreamEvent)) error) datatypes.TerminalStatus {
	var terminal datatypes.TerminalStatus
	err := stream(func(ev datatypes.StreamEvent) {
		printEvent(ev)
		switch ev.Status {
		case datatypes.StatusSuccess, datatypes.StatusError, datatypes.StatusRestarting:
			terminal = ev.Status
		}
	})
	if err != nil {
		printError(err.Error())
		return terminal
	}
	if terminal == "" {
		printWarning("The stream ended without a final status; check the service logs.")
	}
	return terminal
}

// exitForOutcome maps the terminal status onto the process exit code. A
// severed stream counts as a failure: the operation may still be running,
// but the caller cannot know how it ended.
func exitForOutcome(terminal datatypes.TerminalStatus) {
	switch terminal {
	case datatypes.StatusSuccess:
	case datatypes.StatusRestarting:
		printMuted("Services are restarting; the panel may be briefly unavailable.")
	default:
		os.Exit(1)
	}
}

// confirm prompts on stdin and accepts y/yes.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
