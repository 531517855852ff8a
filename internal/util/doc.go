// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small text and file helpers shared by doubtrun packages.
//
// # Key Functions
//
// Text:
//   - FoldCase: Unicode-aware lower-casing for keyword matching
//   - RuneLen: Character count used by length-based heuristics
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: Display-width truncation for terminal output
//   - CleanSpeechText: Strips markdown so synthesised speech reads naturally
//
// Files:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	lower := util.FoldCase(question)
//	preview := util.TruncateRunes(answer, 80)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
