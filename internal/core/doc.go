// Package core provides the business logic for spreadsheet sync.
//
// This package is the heart of the sync engine, containing all domain logic
// independent of storage, transport or source technology. It can be used by
// the web server, the CLI, or tests without modification; persistence and
// sources are reached through the [ConfigStore], [RecordStore],
// [SourceAdapter] and [CredentialProvider] interfaces.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Config: [ProjectSyncConfig] owns the sources of a project. The
//     [ConfigRepository] decodes stored documents by schema version and
//     migrates legacy single-source configs once.
//   - Mapping: [DetectHeaderRow] finds the header below any banner rows, and
//     [Mapper] turns the rows below it into [AggregateRecord] or
//     [IndividualRecord] values using the source's column letters.
//   - Merge: [Merger] upserts records by natural key, checking existence once
//     per batch so inserts and updates can be counted.
//   - Orchestration: [Orchestrator.Run] drives every active (source, sheet)
//     unit of a project, isolating failures per unit.
//   - Scheduling: [Scheduler] fires recurring runs, backing off after failures.
//   - Service: [Service] is the entry point for all public operations.
//
// # Sync Flow
//
//  1. Load the project config, migrating a legacy document if needed
//  2. Mark the project as syncing and obtain one access token
//  3. For each active source and selected sheet: fetch, detect header, map, merge
//  4. Sum unit counts and write back the last sync status
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - CFG001-CFG004: Config errors (missing, invalid, unknown job, bad column)
//   - AUTH001-AUTH002: Credential errors
//   - FETCH001-FETCH003: Source errors (unavailable, bad range, permission)
//   - MERGE001: Storage write errors during merge
//   - DB001-DB004: Database connectivity errors
//   - REQ001-REQ003: Request errors (invalid, cancelled, timeout)
//   - RATE001: Rate limiting
package core
