// Package http exposes the recurring schedule API over net/http.
//
// Every endpoint except GET /healthz requires an Authorization: Bearer
// credential that the configured identity resolver maps to an owner id.
//
//   - POST /rules: body {"dayOfWeek","startTime","endTime"}. Responds 201 with
//     the rule record and any overlap warnings.
//   - GET /rules: the caller's active rules in creation order.
//   - DELETE /rules/{id}: soft-deactivates the rule. Responds {"success":true}.
//   - GET /weeks/{date}: expanded slots for the seven days starting at date.
//   - GET /weeks/{date}/calendar.ics: the same slots as an iCalendar feed.
//   - PUT /rules/{id}/occurrences/{date}: body {"startTime","endTime"}.
//     Overrides one dated occurrence and responds with the exception record.
//   - DELETE /rules/{id}/occurrences/{date}: cancels one dated occurrence.
//
// Request/response DTOs live alongside their handlers so tests and
// documentation share the same ground truth.
package http
