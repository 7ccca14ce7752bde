// Command zipbuilder builds the ZIP archives of plugin versions and publishes
// them to the archive repository in one commit.
//
//	zipbuilder build <slug> <version>... [--context msg]
//	zipbuilder config show
//	zipbuilder version
package main

func main() {
	execute()
}
