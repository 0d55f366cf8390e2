// Package library finds the videos that need subtitles.
//
// Each root is walked recursively. Dot-directories, the extras folder and
// configured skip directories are pruned. Outside series mode a folder holds
// one movie, so only its largest video is kept; in series mode every video
// in the folder is an episode and carries its SxxExx code.
package library
