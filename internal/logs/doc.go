// Package logs reads the shivuk log file for `shivuk logs`.
//
// Last and ReadFrom return whole lines plus the byte offset to resume from;
// Follow watches the file with fsnotify and delivers lines as they are
// appended, restarting from the top when the file is truncated or replaced.
// Parse turns JSON log lines into Entries so the CLI can filter by level and
// component; lines in the console format pass through untouched.
package logs
