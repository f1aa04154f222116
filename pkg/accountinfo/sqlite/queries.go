package sqlite

const (
	UpsertAccountInfo = `INSERT INTO account_info ("id", "realm", "application_key_id", "account_id", "auth_token", "api_url", "download_url", "s3_api_url", "recommended_part_size", "absolute_minimum_part_size", "allowed")
VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT ("id") DO UPDATE SET
  "realm" = excluded."realm",
  "application_key_id" = excluded."application_key_id",
  "account_id" = excluded."account_id",
  "auth_token" = excluded."auth_token",
  "api_url" = excluded."api_url",
  "download_url" = excluded."download_url",
  "s3_api_url" = excluded."s3_api_url",
  "recommended_part_size" = excluded."recommended_part_size",
  "absolute_minimum_part_size" = excluded."absolute_minimum_part_size",
  "allowed" = excluded."allowed";`
	GetAccountInfo = `SELECT "realm", "application_key_id", "account_id", "auth_token", "api_url", "download_url", "s3_api_url", "recommended_part_size", "absolute_minimum_part_size", "allowed" FROM account_info WHERE "id" = 1;`

	UpsertBucket = `INSERT INTO bucket ("name", "id") VALUES (?, ?) ON CONFLICT ("name") DO UPDATE SET "id" = excluded."id";`
	GetBucketID  = `SELECT "id" FROM bucket WHERE "name" = ?;`
	DeleteBucket = `DELETE FROM bucket WHERE "name" = ?;`

	ClearAccountInfo = `DELETE FROM account_info;`
	ClearBuckets     = `DELETE FROM bucket;`
)
