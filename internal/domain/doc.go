// Package domain models ERA5 reanalysis retrieval requests and the derived
// per-district hazard records.
//
// # Data Source
//
// Gridded climate fields come from the ERA5 single-levels reanalysis, served
// by the Copernicus Climate Data Store (CDS). Retrieval is asynchronous: a
// request is submitted, queued server-side, and polled until the prepared
// archive becomes downloadable. The service enforces per-account concurrency
// caps and rejects oversized requests, which is why a multi-year,
// multi-variable request is partitioned into bounded sub-requests before
// submission.
//
// # Request Conventions
//
// Variables use the CDS long names, e.g.
//
//	maximum_2m_temperature_since_previous_post_processing
//	minimum_2m_temperature_since_previous_post_processing
//	total_precipitation
//	surface_net_solar_radiation
//	2m_dewpoint_temperature
//
// The spatial subset is a WGS-84 bounding box. The default study region is
// India: 8-38N, 68-98E.
//
// Partitioning is hierarchical: calendar year first, then variable, then month
// ranges, until each sub-request's cost (days in span x variable count) is
// within the configured threshold. See [BuildSubRequests].
//
// # Sub-Request Identity
//
// A sub-request's ID is a deterministic function of its variables, year, month
// span, bounding box, and output format (SHA-256, first 8 bytes, hex). The ID
// doubles as the archive key: the downloaded file is named after it, so a file
// already on disk for a key means the sub-request is complete and is never
// re-fetched. This gives idempotent, resumable batches without distributed
// coordination. See [SubRequest.Key].
//
// # Archive Payload
//
// Each archive is a zip whose members are CSV grid files, one row per
// (time, lat, lon, value) sample. [DecodeArchive] reconstructs the regular
// lat/lon mesh per time step. The exact wire schema is owned by the remote
// service; only this flat tabular layout is assumed here.
package domain
