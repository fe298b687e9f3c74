// Command mixtape is the CLI for the mixtape batch downloader. It manages the
// daemon process and talks to its HTTP API to create, run, and inspect
// batches of Bilibili audio downloads.
package main
