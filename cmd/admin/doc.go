// Package main (cmd/admin) implements the operator command line client for the
// form intake server.
//
// Every command logs in with --username/--password (or ADMIN_USERNAME and
// ADMIN_PASSWORD), performs one request against the operator API and logs out.
//
// Commands:
//
//	session             - Print the authenticated session
//	list                - List submissions (--endpoint, --search, --limit, --offset)
//	get <id>            - Print one submission
//	delete <id>         - Delete one submission
//	endpoints           - List endpoints with counts and unseen markers
//	view <endpoint>     - Mark an endpoint as viewed
//	export <endpoint>   - Download the CSV export (--output to write a file)
//	analytics           - Print the analytics report (--days)
//
// Example:
//
//	intake-admin --server=https://forms.example.com list --endpoint=contact --search=jane
package main
