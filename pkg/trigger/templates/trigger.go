// SPDX-License-Identifier: Apache-2.0

package templates

// EnqueueTrigger installs the AFTER ROW trigger that calls EnqueueFunction.
// `CREATE OR REPLACE TRIGGER` (Postgres 14+) gives idempotent re-installation
// for free (spec §4.5: "re-installing over an existing trigger is a no-op"),
// the same idempotency property the teacher relies on in
// pkg/backfill/templates/trigger.go for its own AFTER-row trigger.
const EnqueueTrigger = `CREATE OR REPLACE TRIGGER {{ .TriggerName | qi }}
    AFTER INSERT OR UPDATE OR DELETE
    ON {{ .TableName | qi }}
    FOR EACH ROW
    EXECUTE PROCEDURE {{ .FunctionName | qi }}();
`

// DropTrigger is used on drop(entity) (spec §4.5: "Un-installation on drop is
// by trigger-name").
const DropTrigger = `DROP TRIGGER IF EXISTS {{ .TriggerName | qi }} ON {{ .TableName | qi }};`

// DropFunction removes the trigger function once its last trigger is gone.
const DropFunction = `DROP FUNCTION IF EXISTS {{ .FunctionName | qi }}();`
