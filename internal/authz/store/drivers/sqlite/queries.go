package sqlite

const (
	getValueQuery = `SELECT value FROM kv WHERE namespace = ? AND key = ?`

	putValueQuery = `INSERT INTO kv (namespace, key, value, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	deleteValueQuery = `DELETE FROM kv WHERE namespace = ? AND key = ?`

	deleteNamespaceQuery = `DELETE FROM kv WHERE namespace = ?`

	setAlarmQuery = `INSERT INTO alarms (namespace, fire_at) VALUES (?, ?)
ON CONFLICT (namespace) DO UPDATE SET fire_at = excluded.fire_at`

	getAlarmQuery = `SELECT fire_at FROM alarms WHERE namespace = ?`

	deleteAlarmQuery = `DELETE FROM alarms WHERE namespace = ?`

	dueAlarmsQuery = `SELECT namespace FROM alarms WHERE fire_at <= ? ORDER BY fire_at, namespace`
)
