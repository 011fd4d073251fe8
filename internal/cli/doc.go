// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package cli implements relay's command-line interface.

Parse turns os.Args into a Command plus Args; main dispatches to the
Handle* function for that command. Handlers always return errors and
ExitCodeFor maps them onto process exit codes, so display policy lives
in one place.

Every command that produces data accepts --json and emits the
JSONResponse envelope for scripting.
*/
package cli
