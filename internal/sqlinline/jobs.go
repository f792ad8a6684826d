// Package sqlinline holds the SQL statements used by the Postgres job
// store. Keeping them as named constants makes them greppable and keeps
// the store code free of string assembly.
package sqlinline

const QJobsSchema = `--sql 7f3c9e14-52da-4b0b-9f0e-6a1c8b2d4e71
create table if not exists jobs (
  id               text primary key,
  status           text not null,
  phase            text not null default '',
  agent            text not null default '',
  iteration        int  not null default 0,
  total_iterations int  not null,
  progress         text not null default '',
  error_message    text not null default '',
  final_image      text not null default '',
  iteration_images text[] not null default '{}',
  run_dir          text not null default '',
  created_at       timestamptz not null default now(),
  updated_at       timestamptz not null default now()
);
`

const QInsertJob = `--sql 2b8f1a6d-9c44-4e03-8d5a-f21e7c3b9a05
insert into jobs (id, status, total_iterations, progress, created_at, updated_at)
values ($1, $2, $3, $4, now(), now());
`

const QGetJob = `--sql c4a7d2e9-1f58-4b6c-a3d0-8e92b5f4c617
select id, status, phase, agent, iteration, total_iterations, progress,
       error_message, final_image, iteration_images, run_dir, created_at, updated_at
from jobs
where id = $1;
`

const QMarkJobRunning = `--sql 9d1e5b3a-7c20-4f84-b6e1-2a4f8d0c3e59
update jobs
set status = $2,
    run_dir = case when run_dir = '' then $3 else run_dir end,
    updated_at = now()
where id = $1;
`

const QUpdateJobProgress = `--sql 5e8a2c4f-3d16-4a97-8b05-c1d9f6e2a738
update jobs
set phase = coalesce(nullif($2, ''), phase),
    agent = coalesce(nullif($3, ''), agent),
    iteration = case when $4 > 0 then $4 else iteration end,
    progress = coalesce(nullif($5, ''), progress),
    updated_at = now()
where id = $1;
`

const QAppendJobIterationImage = `--sql a1f6d8b2-4e93-4c57-9a20-7b3e5c8d1f46
update jobs
set iteration_images = array_append(iteration_images, $2),
    updated_at = now()
where id = $1;
`

const QCompleteJob = `--sql e7b3f5a9-8d42-4c16-b0a8-3f9c2e6d5b14
update jobs
set status = $2,
    phase = $3,
    agent = '',
    progress = $4,
    final_image = $5,
    iteration_images = $6,
    run_dir = case when run_dir = '' then $7 else run_dir end,
    updated_at = now()
where id = $1;
`

const QFailJob = `--sql 3c5e9f1b-6a84-4d20-8e73-b2d4a7c9f028
update jobs
set status = $2,
    error_message = $3,
    updated_at = now()
where id = $1;
`

const QSweepJobs = `--sql b9d4a6c1-2e85-4f39-a017-5c8b3e7f2d64
delete from jobs
where status in ('completed', 'failed')
  and updated_at < $1;
`
