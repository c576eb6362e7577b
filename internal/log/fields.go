// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldRunID     = "run_id"
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldStage     = "stage"

	// EPG fields
	FieldChannelID  = "channel_id"
	FieldChannel    = "channel"
	FieldChannels   = "channels"
	FieldProgrammes = "programmes"
	FieldStrategy   = "strategy"

	// Translation fields
	FieldSource   = "source"
	FieldProvider = "provider"
	FieldBackend  = "backend"

	// Path / URL fields
	FieldPath   = "path"
	FieldInput  = "input"
	FieldOutput = "output"
	FieldURL    = "url"
	FieldBytes  = "bytes"
)
