// Package cmd defines the wiimonitor CLI.
//
//   - bot runs the scheduled build check together with the admin panel, and
//     optionally serves Prometheus metrics on metrics.addr.
//   - render runs the headless browser service the bot renders pages with.
//   - check performs a single build check and exits.
//   - screenshot captures the status page through the render service into a
//     JPEG file.
//
// Configuration comes from an optional config file, WIIMON_* environment
// variables, and the BOT_TOKEN, ADMIN_IDS, DB_FILE and PORT variables the bot
// has always been deployed with. A .env file is loaded first when present.
package cmd
