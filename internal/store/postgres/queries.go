package postgres

const triggerColumns = `
    id, name, work_order_type, trigger_type, condition, is_active, created_at, updated_at`

const queryListActiveTriggers = `
SELECT` + triggerColumns + `
FROM triggers
WHERE trigger_type = $1
  AND is_active = true
  AND (work_order_type IS NULL OR work_order_type = $2)
ORDER BY name
`

const queryListActiveTriggersByType = `
SELECT` + triggerColumns + `
FROM triggers
WHERE trigger_type = $1
  AND is_active = true
ORDER BY name
`

const queryGetTrigger = `
SELECT` + triggerColumns + `
FROM triggers
WHERE id = $1
`

const queryListTriggers = `
SELECT` + triggerColumns + `
FROM triggers
WHERE ($1::text IS NULL OR work_order_type IS NULL OR work_order_type = $1)
ORDER BY trigger_type, name
`

const queryInsertTrigger = `
INSERT INTO triggers (id, name, work_order_type, trigger_type, condition, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryUpdateTrigger = `
UPDATE triggers
SET name = $2, work_order_type = $3, condition = $4, is_active = $5, updated_at = $6
WHERE id = $1
`

const queryDeleteTriggerActions = `
DELETE FROM trigger_actions WHERE trigger_id = $1
`

const queryDeleteTrigger = `
DELETE FROM triggers WHERE id = $1
`

const actionColumns = `
    id, trigger_id, action_type, target_type, target_position_ids,
    template_code, subject, body, sort_order, is_active`

const queryListActionsForTriggers = `
SELECT` + actionColumns + `
FROM trigger_actions
WHERE trigger_id = ANY($1)
  AND is_active = true
ORDER BY trigger_id, sort_order
`

const queryListAllActionsForTrigger = `
SELECT` + actionColumns + `
FROM trigger_actions
WHERE trigger_id = $1
ORDER BY sort_order
`

const queryInsertAction = `
INSERT INTO trigger_actions (id, trigger_id, action_type, target_type, target_position_ids, template_code, subject, body, sort_order, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const queryUpdateAction = `
UPDATE trigger_actions
SET action_type = $2, target_type = $3, target_position_ids = $4,
    template_code = $5, subject = $6, body = $7, sort_order = $8, is_active = $9
WHERE id = $1
`

const queryDeleteAction = `
DELETE FROM trigger_actions WHERE id = $1
`

const queryInsertFiring = `
INSERT INTO trigger_firings (trigger_id, work_order_id, fired_at)
VALUES ($1, $2, $3)
`

const queryFiredWorkOrders = `
SELECT work_order_id
FROM trigger_firings
WHERE trigger_id = $1
  AND work_order_id = ANY($2)
`

const workOrderColumns = `
    id, wo_type, wo_number, title, status, updated_at, deadline`

const queryFindStuck = `
SELECT` + workOrderColumns + `
FROM work_orders
WHERE status = $1
  AND updated_at < $2
  AND ($3::text IS NULL OR wo_type = $3)
ORDER BY updated_at ASC
LIMIT $4
`

const queryFindApproachingDeadline = `
SELECT` + workOrderColumns + `
FROM work_orders
WHERE deadline IS NOT NULL
  AND deadline >= $1
  AND deadline <= $2
  AND status <> ALL($3)
  AND ($4::text IS NULL OR wo_type = $4)
ORDER BY deadline ASC
LIMIT $5
`

const queryInsertNotification = `
INSERT INTO notifications (id, work_order_id, employee_id, subject, body, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (work_order_id, employee_id) DO NOTHING
`

const employeeColumns = `
    id, name, email, phone`

const queryEmployeesByIDs = `
SELECT` + employeeColumns + `
FROM employees
WHERE id = ANY($1)
  AND is_active = true
ORDER BY name
`

const queryEmployeesByPositions = `
SELECT DISTINCT` + employeeColumns + `
FROM employees e
JOIN employee_positions ep ON ep.employee_id = e.id
WHERE ep.position_id = ANY($1)
  AND e.is_active = true
ORDER BY name
`

const queryAssigneesOf = `
SELECT employee_id
FROM work_order_assignees
WHERE work_order_id = $1
`

const queryWorkflowPositions = `
SELECT DISTINCT position_id
FROM workflow_steps
WHERE position_id IS NOT NULL
`
