package postgres

const (
	UpsertAccountInfo = `INSERT INTO account_info ("id", "realm", "application_key_id", "account_id", "auth_token", "api_url", "download_url", "s3_api_url", "recommended_part_size", "absolute_minimum_part_size", "allowed")
VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
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

	UpsertBucket = `INSERT INTO bucket ("name", "id") VALUES ($1, $2) ON CONFLICT ("name") DO UPDATE SET "id" = excluded."id";`
	GetBucketID  = `SELECT "id" FROM bucket WHERE "name" = $1;`
	DeleteBucket = `DELETE FROM bucket WHERE "name" = $1;`

	ClearAccountInfo = `DELETE FROM account_info;`
	ClearBuckets     = `DELETE FROM bucket;`
)
